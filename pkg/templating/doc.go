/*
Package templating provides the filesystem-based html/template engine used to
render site pages.

Layouts and partials are loaded from an includes directory and addressed by
their slash-separated path relative to it. Pages are parsed on demand against
a clone of that set, so each page can reference any include and be wrapped in
a chain of layouts selected through YAML front matter.

The function map carries a small library of helpers, most notably the "date"
filter:

	{{ date .Data.date "%Y-%m-%d" }}   -> 2024-03-05
	{{ date .Data.date "%B %d, %Y" }}  -> March 05, 2024
	{{ date .Data.date "" }}           -> 3/5/2024

Values that cannot be read as a date render as "Invalid Date" instead of
failing the page.
*/
package templating
