// Package infobox defines the domain types, interfaces, and errors shared by the
// fetch, extract, persist, and query subsystems.
package infobox
