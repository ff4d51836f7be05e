// Command marklift converts documents, media, and web pages to Markdown
// through a remote conversion service.
package main
