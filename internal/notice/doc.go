// Package notice defines the types shared by the fiscal-notice retrieval
// pipeline: the reference pair used as an idempotency key, the structured
// result returned by the portal parser, the transient form state scraped
// during an automation run, the error taxonomy, and the collaborator
// interfaces wired together by the pipeline orchestrator.
package notice
