package enums

// ActorKind identifies who performed a mutation.
type ActorKind string

const (
	ActorKindCustomer ActorKind = "customer"
	ActorKindAdmin    ActorKind = "admin"
	ActorKindService  ActorKind = "service"
)

// IsValid reports whether the value is a known ActorKind.
func (k ActorKind) IsValid() bool {
	return k == ActorKindCustomer || k == ActorKindAdmin || k == ActorKindService
}
