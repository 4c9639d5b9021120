// Package html extracts readable text from HTML pages.
package html
