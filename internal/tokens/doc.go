// Package tokens models harvested credentials and where to find them.
//
// A response is searched per Kind along an ordered list of dotted paths
// (a PathVariants entry); the first present value wins, so declaration order is
// precedence order:
//
//	doc, _ := tokens.NewDocument(resp, tokens.DefaultMaxBodyBytes)
//	bag := tokens.ExtractAll(tokens.DefaultPathVariants(), doc)
//
// Paths are rooted at the response document: "status", "headers" (names
// lower-cased) and "data" (the JSON body). For example "headers.x-access-token"
// or "data.auth.tokens.access_token".
//
// Store reconciles the in-memory Bag with a durable storage.Storage: reads fall
// back to storage while nothing is cached, writes update both.
package tokens
