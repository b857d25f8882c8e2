package engine

// Contains re-exports the unexported contains predicate for the
// external engine_test package.
var Contains = contains
