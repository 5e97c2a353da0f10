// Package oracle turns drawing instructions into candidate geometry by
// asking a language model.
//
// The Oracle builds a prompt from a Request (instruction, full memory
// snapshot, plan state and any issues from a failed attempt), sends it to
// an LLM backend and parses the reply into a strictly typed Response.
// Anything that does not fit the response contract becomes an OracleError,
// as do timeouts and transport failures, so callers handle every failed
// generation the same way.
//
// Backends implement the small LLM interface: GeminiLLM (google genai),
// LangChainLLM (OpenAI, Anthropic and OpenRouter through langchaingo) and
// FakeLLM for tests and offline runs. Cross-cutting concerns are layered
// with Middleware:
//
//	llm := oracle.Wrap(backend,
//	    oracle.RateLimit(2, 4),
//	    oracle.Retry(3, 500*time.Millisecond),
//	    oracle.Logging(logger),
//	)
//	o := oracle.New(llm, cfg)
//	resp, err := o.Generate(ctx, req)
package oracle
