// Package resource provides single-owner handles to foreign objects.
//
// Every foreign object the bridge creates (a property tree, network,
// environment or simulation state) is wrapped in exactly one Handle. The
// handle destroys its object at most once:
//
//	h, err := resource.New(table, resource.KindNetwork, ptr, eng.DestroyNetwork)
//	defer h.Release(ctx) // second and later calls are no-ops
//
// # Ownership Table
//
// A Table maps live foreign pointers to their owning handle. Claiming a
// pointer that is already owned fails, so two sessions can never hold the
// same object:
//
//	table := resource.NewTable()
//	a, _ := resource.New(table, resource.KindState, ptr, destroy)
//	_, err := resource.New(table, resource.KindState, ptr, destroy) // contract error
//
// # Ownership Transfer
//
// Disown gives up a handle without destroying the object. The property
// tree bridge uses it when a child tree is attached to a parent: from then
// on the parent's destroy frees the child.
//
// # Observers
//
// Register observers to track lifecycle events:
//
//	type logObserver struct{}
//
//	func (logObserver) OnHandleEvent(e resource.Event) {
//	    log.Printf("%s 0x%x event %d", e.Kind, e.Ptr, e.Type)
//	}
//
//	table.Subscribe(logObserver{})
//
// Observers run synchronously on the goroutine that changed the handle.
package resource
