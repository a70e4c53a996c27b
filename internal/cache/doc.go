// Package cache provides a small generic TTL cache with bounded size.
package cache
