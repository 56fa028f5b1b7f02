// Package prompt contains the tenant-owned prompt workspace: projects, prompts and their
// immutable versions, runs of a version against a provider, test cases and run feedback.
package prompt
