/*
Package adapter performs ray-geometry intersection for one mesh.

The Adapter interface is the boundary to the intersection kernel: Trace
drains a batch and appends every surviving ray (pass-through, shadow,
secondary) to the output batch. The built-in MeshAdapter runs on the
fogleman/pt triangle kernel; the mesh is compiled into the kernel's
acceleration structure once and shared by every instance of the mesh
through the Cache.

All intersection math happens in object space. Worker goroutines claim ray
chunks through an atomic shared index, march each ray and its roulette
replacements to termination, test spawned shadow rays against the same
kernel, and merge their local output once at the end. Russian roulette
draws from a per-worker generator seeded with the frame seed plus the
worker id, so frames are reproducible.
*/
package adapter
