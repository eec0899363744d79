// Package render turns a named template and a context map into channel
// payloads.
//
// A Template carries one variant per channel. Text fields are Go
// text/templates executed with missingkey=error; the email HTML body is an
// html/template. Keys listed in Template.Required must be present and
// non-nil. Any failure is reported as *Error, which matches ErrRender with
// errors.Is and is permanent: rendering is pure, so the same context always
// fails the same way.
//
// Output is bounded per channel by Limits. Oversized fields are cut at a
// rune boundary and end with TruncationMarker. SMS text is NFC normalised
// and fitted to a segment budget using GSM-7 or UCS-2 accounting.
//
// Templates can be loaded from YAML:
//
//	templates:
//	  - name: comment
//	    required: [author, post_url]
//	    email:
//	      subject: "{{.author}} commented on your post"
//	      html: "<p><a href=\"{{.post_url}}\">View comment</a></p>"
//	    push:
//	      title: "New comment"
//	      body: "{{.author}} replied"
//
// Renderer.Watch reloads that file when it changes.
package render
