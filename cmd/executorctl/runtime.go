package main

import "github.com/young-rocks/aptos-core/core/vm"

// RuntimeFactory constructs the Move VM runtime this binary drives
// transactions through. The Runtime/Session contract is an external
// collaborator (spec.md §1 "treat as opaque") this repository never
// implements; a real deployment links in the actual Move VM and sets this
// var from an init() in its own build, the same way the teacher's
// cmd/utils/flags_rollup.go wires an external L1 RPC client in rather than
// constructing one inline.
var RuntimeFactory func() (vm.Runtime, error)
