package forall

import "sync/atomic"

// Scope is the fault-tolerance region bracketing every device
// issuance. The dispatcher calls Enter immediately before issuing a
// launch and guarantees Exit on all exit paths, including errors.
//
// The default scope does nothing. Install a custom scope to inject
// instrumentation or diagnostic capture without the dispatcher knowing:
//
//	forall.SetScope(myScope)           // process-wide
//	forall.Forall(p, d, body,
//	    forall.WithScope(myScope))     // per call
type Scope interface {
	Enter()
	Exit()
}

// nopScope is the default no-op fault-tolerance scope.
type nopScope struct{}

func (nopScope) Enter() {}
func (nopScope) Exit()  {}

// scopeHolder boxes a Scope so it can be stored atomically.
type scopeHolder struct{ s Scope }

var scopePtr atomic.Pointer[scopeHolder]

func init() {
	scopePtr.Store(&scopeHolder{s: nopScope{}})
}

// SetScope installs the process-wide fault-tolerance scope used when no
// per-call scope is given. Pass nil to restore the default no-op scope.
// SetScope is safe for concurrent use.
func SetScope(s Scope) {
	if s == nil {
		s = nopScope{}
	}
	scopePtr.Store(&scopeHolder{s: s})
}

// activeScope returns the current process-wide scope.
func activeScope() Scope {
	return scopePtr.Load().s
}
