// Package velo inspects and manages server software on a Linux host over a
// single command channel: web servers, databases, caches and language
// runtimes.
//
// A Client wraps a Runner, which executes shell commands on the target
// (locally or over SSH), and answers questions about the applications in
// its catalog:
//
//	run := transport.NewSession(transport.NewLocal())
//	client, err := velo.New(run)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// One round trip for every application
//	statuses, err := client.Status(ctx)
//	fmt.Println(statuses["nginx"]) // running(1.24.0)
//
//	// Load the sections of one application
//	state, err := client.LoadAll(ctx, "php")
//	for _, p := range state.Pools {
//	    fmt.Println(p.Name, p.Listen)
//	}
//
// # Changes
//
// Mutations are validated before they take effect. SaveConfig writes a
// configuration file, runs the application's own config test and reloads
// the service only if the test passes. Restart and Reload run the same test
// first for nginx, apache and php-fpm.
//
//	res, err := client.SaveConfig(ctx, "nginx", content)
//	if !res.Valid {
//	    fmt.Println(res.ValidatorOutput)
//	}
//
// # Manager for Bulk Operations
//
// The Manager type runs status checks and service verbs across several
// hosts concurrently, one Client per host:
//
//	manager := velo.NewManager(clients,
//	    velo.WithConcurrency(5),
//	    velo.WithTimeout(30 * time.Second),
//	)
//	results, err := manager.Restart(ctx, "nginx")
//
// Failing hosts are reported in a *MultiError of *HostError values; the
// results of the other hosts are still returned.
package velo
