// Package server exposes the showcase backend over HTTP.
//
// # Routes
//
//	GET    /health                          liveness and gateway reachability
//	POST   /upload                          relay one multipart "file" to the gateway
//	POST   /products/register-full          images + metadata upload, then insert
//	POST   /products/register               insert with existing image ids
//	GET    /products                        ?category=&seller=&status=&limit=&offset=
//	GET    /products/{id}
//	PUT    /products/{id}/chain-status      {"blockchain_id", "status"}
//	GET    /products/metadata/{blob_id}     cached gateway fetch
//	GET    /personas                        ?limit=&offset=
//	POST   /personas
//	GET    /personas/{wallet}
//	PUT    /personas/{wallet}
//	DELETE /personas/{wallet}
//	GET    /admin/stats
//	GET    /admin/products/cleanup
//	GET    /utils/eth-to-wei/{amount}
//	GET    /utils/wei-to-eth/{amount}
//	GET    /utils/validate-fid/{fid}
//
// Errors are returned as {"error": message}. The status comes from the
// error kind (see apperr.HTTPStatus), except for the two registration
// routes, which answer 400 for bad input and 500 for any other failure.
//
// Upload and registration routes are rate limited per client address when
// rate_limit.enabled is set. Prometheus metrics are served at metrics.path.
package server
