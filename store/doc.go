// Package store provides block storage backends for storage units and a
// bridge that adapts a backend to the unit capability table, translating
// backend failures into SCSI sense data.
package store
