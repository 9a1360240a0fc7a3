// Package containers starts Docker dependencies for integration tests:
//
//   - MySQL 8, backing the durable cache store
//   - Eclipse Mosquitto, the broker push payloads arrive through
//   - ntfy, a target for forwarded notifications
//
// Tests using it carry the integration build tag and usually start one
// container per package in TestMain:
//
//	func TestMain(m *testing.M) {
//	    c, err := containers.NewMySQLContainer(context.Background(), nil)
//	    if err != nil {
//	        panic(err)
//	    }
//	    code := m.Run()
//	    _ = c.Terminate(context.Background())
//	    os.Exit(code)
//	}
//
// Run them with:
//
//	go test -tags=integration ./...
package containers
