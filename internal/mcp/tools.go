package mcp

import "github.com/mark3labs/mcp-go/mcp"

var queryToolDef = mcp.NewTool("corpus_query",
	mcp.WithDescription("Retrieve the chunks of a corpus most similar to a query. "+
		"Works on an unpacked corpus directory or a packaged .arag file. "+
		"Pass either text (embedded with the provider the corpus was indexed with) or a raw vector."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Corpus directory (<name>-arag) or archive (<name>.arag)"),
	),
	mcp.WithString("text",
		mcp.Description("Query text"),
	),
	mcp.WithArray("vector",
		mcp.Description("Query embedding; must match the index dimension"),
		mcp.Items(map[string]any{"type": "number"}),
	),
	mcp.WithNumber("top_k",
		mcp.Description("Number of chunks to return (default from config)"),
	),
)

var statusToolDef = mcp.NewTool("corpus_status",
	mcp.WithDescription("Report whether a corpus's chunk store and index are up to date with its content."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Corpus directory or .arag archive"),
	),
)

var listToolDef = mcp.NewTool("corpus_list",
	mcp.WithDescription("List the content files recorded in a corpus's content_list."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Corpus directory or .arag archive"),
	),
)
