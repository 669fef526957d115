// Package api hosts the HTTP server, middleware, and handlers of the relay.
// Notable routes:
//   - GET /healthz and /readyz for probes; readyz pings the ledger.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/notices retrieves and registers a notice without forwarding.
//   - GET /v1/search retrieves, registers and forwards to the intake service
//     (only when intake is enabled).
//   - POST /v1/identification authenticates against the intake service.
//   - POST /v1/purge clears the ledger.
//
// The original query and form names (numeroFiscal, referenceAvis,
// identifiant, motDePasse) and paths (/requete, /recherche, /purge) are
// accepted as aliases.
package api
