package restbase

import "github.com/restfoundry/restbase-go/singleton"

// Shared returns the process-wide instance of a concrete client type,
// constructing it on the first call. Wrap Client in a named type per
// remote service so each service gets exactly one shared client:
//
//	type OrdersClient struct{ *restbase.Client }
//
//	func orders() (*OrdersClient, error) {
//	    return restbase.Shared(func() (*OrdersClient, error) {
//	        c, err := restbase.New("https://orders.internal")
//	        if err != nil {
//	            return nil, err
//	        }
//	        return &OrdersClient{c}, nil
//	    })
//	}
func Shared[T any](ctor func() (T, error)) (T, error) {
	return singleton.GetOrCreate(singleton.Default, ctor)
}

// ResetShared drops the process-wide instance of T so the next Shared call
// constructs it afresh. Existing references remain valid.
func ResetShared[T any]() {
	singleton.Reset[T](singleton.Default)
}
