// Package client is a small Go client for the showcase-backend HTTP API.
//
// # Usage
//
//	c := client.New("http://127.0.0.1:8000")
//	health, err := c.Health(ctx)
//	page, err := c.ListProducts(ctx, client.ProductQuery{Category: "art", Limit: 10})
//
// Non-2xx answers are returned as *APIError carrying the status code and
// the server's {"error": ...} message.
package client
