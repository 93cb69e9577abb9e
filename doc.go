// Package restbase provides a resilient REST client foundation: verb-shaped
// request operations with bounded retry and exponential back-off, a fixed
// error taxonomy for transport and HTTP failures, and process-wide shared
// client instances per concrete type.
//
// Failures surface as *apierr.Error values carrying a kind, the HTTP status
// when one was received, and a body snippet. Retry eligibility is configured
// separately from classification: transport and timeout failures plus 429
// and 5xx statuses retry by default, other 4xx never do.
//
// Basic usage:
//
//	client, err := restbase.New("https://api.example.com",
//	    restbase.WithMaxAttempts(5),
//	    restbase.WithAuth(restbase.BearerAuth{Token: token}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	var user struct {
//	    ID   string `json:"id"`
//	    Name string `json:"name"`
//	}
//	if err := client.Fetch(ctx, "/users/42", &user); err != nil {
//	    var apiErr *apierr.Error
//	    if errors.As(err, &apiErr) {
//	        log.Fatalf("%s failed: %s", apiErr.Kind, apiErr.Message)
//	    }
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Name:", user.Name)
//
// The retry package is usable on its own for non-HTTP work; see
// retry.Scope.
package restbase
