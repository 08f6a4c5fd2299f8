package types

// Version is the canonical project version.
// All components (CLI, wire contract, store layout) share this version
// per the lockstep versioning policy.
//
// This version is authoritative. PROTOCOL.md must reference this constant.
const Version = "0.3.1"
