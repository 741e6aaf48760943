// Package verifier gates shipping: it extracts a produced update package and
// confirms each service's shipped dependency subset installs cleanly against
// its own manifest in a throwaway environment.
package verifier
