// Package secrets redacts credentials from text before it leaves the
// process. Detection uses the gitleaks default rule set; an allow list of
// regular expressions suppresses known-safe matches.
package secrets
