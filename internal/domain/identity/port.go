package identity

// Resolver maps a presented credential to an Identity.
type Resolver interface {
	Resolve(credential string) (Identity, error)
}
