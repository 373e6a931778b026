// Package testsupport holds helpers shared by package tests: temp-dir
// configs, input image fixtures and stub capabilities.
package testsupport
