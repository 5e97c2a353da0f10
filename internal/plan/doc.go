// Package plan tracks multi-stage drawings.
//
// A complex request is first answered with an announcement: the oracle
// returns a plan of components and draws nothing (stage 0). Each later
// commit reports the component just drawn and the components remaining.
// While components remain, the controller continues the drawing without
// new user input, one component per stage. A Chain bounds that
// continuation; running past the bound yields a PlanOverrunError and the
// plan is dropped.
package plan
