// Package verbs registers the "verbs" RDMA provider backed by librdmacm and
// libibverbs. The provider is only compiled with the rdma build tag:
//
//	go build -tags rdma ./...
//
// Without the tag importing the package is a no-op and only the software
// provider is available.
package verbs

// Name is the name the provider registers under
const Name = "verbs"
