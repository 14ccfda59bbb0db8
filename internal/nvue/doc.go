// Package nvue provides a transactional client for NVIDIA's NVUE REST API.
//
// NVUE configuration is changed through revisions: a revision is created on the
// switch, configuration is staged into it with one or more patches, and the
// revision is applied. Applying is asynchronous, so the client polls the
// revision until it reports "applied" or the caller's wait budget runs out.
//
// # Usage Example
//
//	conn, err := transport.NewConnection(transport.Config{Host: "leaf01", Username: "cumulus", Password: pw})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := nvue.NewClient(conn)
//
//	// Read the applied router configuration
//	resp, err := client.Get(ctx, "router")
//
//	// Create, patch and apply a revision, waiting up to 15 seconds
//	resp, err = client.Set(ctx, "router", map[string]any{
//	    "router": map[string]any{"bgp": map[string]any{"enable": "on"}},
//	}, nvue.Options{Force: true, Wait: 15})
//	if resp.State() != nvue.StateApplied {
//	    log.Printf("apply still in progress: %s", resp.StateString())
//	}
//
// # Caller-Managed Revisions
//
// When Options.RevisionID is set, Set only patches that revision and returns the
// patch result. Several Set calls can stage changes into the same revision
// before ApplyRevision commits them together.
//
// # Responses
//
// Every round trip goes through DecodeResponse. Bodies that are valid JSON are
// decoded; anything else is returned as text. HTTP error statuses become an
// *Error of type ErrTypeTransport carrying the status and the body.
//
// # Thread Safety
//
// A Client holds no transaction state and is safe for concurrent use. Nothing
// in the protocol orders concurrent transactions; the server does.
package nvue
