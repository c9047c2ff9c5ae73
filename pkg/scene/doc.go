/*
Package scene describes the world a frame is traced against.

A Scene is built once per frame from a YAML description (or directly by a
host program) and is immutable while tracing: meshes with tagged material
variants, instances carrying their transform, inverse and normal matrices
(inverted once through gonum at build), lights, the camera and the film.

Ownership is static: instance ids map to ranks by the owning mesh's data
index modulo the world size. Every rank derives the map from the same
ordered mesh list, so all ranks agree on every owner without coordination.
*/
package scene
