// Package props bridges host configuration values and foreign property
// trees.
//
// A foreign tree node has four key spaces: scalars (strings), children,
// string arrays and child arrays. Build walks an ordered Map and issues
// the matching add calls; Reflect reads a tree back by enumerating each
// key space. Both directions agree on the canonical mapping, so
//
//	t, _ := props.Build(ctx, eng, m)
//	back, _ := props.Reflect(ctx, eng, t.Ptr())
//	back.Value().Equal(m) // true once scalars are stringified
//
// Ownership: a tree returned by Build or New is owned and destroys its
// foreign root on Release. Children attached to it are owned by the
// foreign parent and are freed with the root. Reflect never owns; Adopt
// owns the root only.
package props
