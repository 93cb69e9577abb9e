package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	restbase "github.com/restfoundry/restbase-go"
	"go.uber.org/zap"
)

// restprobe issues one request against the API configured through
// RESTPROBE_* environment variables and prints the response body.
//
//	RESTPROBE_BASE_ADDRESS=https://api.example.com restprobe -v /status
//	restprobe -method POST -data '{"name":"example"}' /items
func main() {
	var (
		method  = flag.String("method", "GET", "HTTP method: GET, POST, PUT, PATCH or DELETE")
		data    = flag.String("data", "", "request body, JSON unless -form is set")
		form    = flag.Bool("form", false, "send -data as form-encoded key=value pairs")
		timeout = flag.Duration("timeout", 60*time.Second, "overall request deadline")
		verbose = flag.Bool("v", false, "log every attempt")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fatal("usage: restprobe [flags] <path>")
	}
	path := flag.Arg(0)

	var opts []restbase.Option
	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fatal("build logger: %v", err)
		}
		defer func() { _ = logger.Sync() }()
		opts = append(opts, restbase.WithLogger(logger))
	}
	if token := os.Getenv("RESTPROBE_TOKEN"); token != "" {
		opts = append(opts, restbase.WithAuth(restbase.BearerAuth{Token: token}))
	}

	client, err := restbase.NewFromEnv("RESTPROBE", opts...)
	if err != nil {
		fatal("create client: %v", err)
	}

	payload, err := buildPayload(*data, *form)
	if err != nil {
		fatal("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var body []byte
	switch strings.ToUpper(*method) {
	case "GET":
		err = client.Fetch(ctx, path, &body)
	case "POST":
		err = client.Create(ctx, path, payload, &body)
	case "PUT":
		err = client.Update(ctx, path, payload, &body)
	case "PATCH":
		err = client.Patch(ctx, path, payload, &body)
	case "DELETE":
		err = client.Remove(ctx, path)
	default:
		fatal("unknown method: %s", *method)
	}
	if err != nil {
		fatal("%s %s: %v", strings.ToUpper(*method), path, err)
	}

	if len(body) > 0 {
		fmt.Println(string(body))
	}
}

// buildPayload interprets -data. Form mode parses key=value pairs;
// otherwise the string must be JSON and is sent as such.
func buildPayload(data string, form bool) (any, error) {
	if data == "" {
		return nil, nil
	}
	if form {
		vals, err := url.ParseQuery(data)
		if err != nil {
			return nil, fmt.Errorf("parse -data as form: %w", err)
		}
		return vals, nil
	}

	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("parse -data as JSON: %w", err)
	}
	return v, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
