/*
Package accel routes rays between instances through a top-level BVH.

The index is built once per frame over instance world bounds (median split
on the longest axis). Its single batched operation answers, for each ray,
the next instance whose bounding box the ray enters together with the entry
distance; the tracer advances the ray by 0.8 of that distance, which leaves
it short of the next domain's box and of any surface inside it.
Ties on the entry distance resolve to the lower instance id, so every rank
routes identically.
*/
package accel
