// Package bytecode provides the compiled form of LUW scripts: a
// stack-based instruction set, the compiler that lowers parsed
// scripts to it, the .le artifact container, and the virtual machine
// that executes it.
//
// The format is designed for:
//   - Compact representation (1-5 bytes per instruction)
//   - Fast decoding (fixed-width opcodes, simple operand formats)
//   - Deterministic output (recompiling the same source yields
//     byte-identical artifacts)
//
// # Architecture Overview
//
//   - Opcodes: a small stack-based instruction set covering constants,
//     variable access, string joining, comparisons, conditional jumps,
//     command calls, shell passthrough and cluster batches
//
//   - Chunk: a compiled unit containing a deduplicated string constant
//     pool and the instruction stream. Chunks validate their own
//     integrity: operand indices must resolve inside the pool and
//     jumps must land on instruction boundaries.
//
//   - Artifact: the on-disk .le container ("LUWC" magic, versioned
//     header, canonical CBOR manifest, snappy-compressed chunk,
//     CRC-32C trailer). Malformed input is rejected with a typed
//     FormatError before anything executes.
//
//   - VM: a string-stack interpreter. All side effects flow through
//     the injected Dispatcher, Environment and ClusterRunner
//     interfaces, so the VM itself stays free of shell policy.
//
// The VM and the tree-walking interpreter in the shell package are
// semantically equivalent: a script behaves the same whether run from
// source or from a compiled artifact.
package bytecode
