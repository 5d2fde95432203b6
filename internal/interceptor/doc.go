// Package interceptor attaches stored credentials to outgoing requests and
// harvests fresh ones from responses.
//
// An Engine registers a request and a response interceptor on a Host (see
// httpclient.Client). On every request it reads the current tokens and sets
// the authorization header (and, if enabled, the CSRF header). On every
// successful response it extracts tokens along the configured paths, merges
// them into its tokens.Store and runs the status callback registered for the
// response status. Failure responses only run the status callback.
//
//	client := httpclient.New()
//	engine := interceptor.New()
//	if err := engine.Activate(interceptor.Config{
//		Client:       client,
//		Storage:      store,
//		RefreshToken: true,
//	}); err != nil {
//		return err
//	}
//	defer engine.Deactivate()
//	engine.Seed(ctx)
//
// Activation without a client is a deliberate no-op so configuration may
// arrive late; Reconfigure can supply the client afterwards.
package interceptor
