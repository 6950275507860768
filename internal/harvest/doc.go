// Package harvest defines the core types shared across the harvesting
// subsystems: source descriptors, the engine contract, and the normalized
// record every engine emits.
package harvest
