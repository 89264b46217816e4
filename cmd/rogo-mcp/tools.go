package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createLoadPageTool returns the load_page tool definition
func createLoadPageTool() mcp.Tool {
	return mcp.NewTool("load_page",
		mcp.WithDescription("Fetch a web page, split its text into chunks, and make it the active document set"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Page URL to fetch (http or https)"),
		),
		mcp.WithNumber("chunk_size",
			mcp.Description("Chunk size in characters (default: 1000)"),
		),
		mcp.WithNumber("chunk_overlap",
			mcp.Description("Overlap between adjacent chunks in characters (default: 200)"),
		),
	)
}

// createAskQuestionTool returns the ask_question tool definition
func createAskQuestionTool() mcp.Tool {
	return mcp.NewTool("ask_question",
		mcp.WithDescription("Answer a question from the loaded page, citing the supporting passages"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question to answer from the loaded page"),
		),
	)
}

// createPageStatsTool returns the page_stats tool definition
func createPageStatsTool() mcp.Tool {
	return mcp.NewTool("page_stats",
		mcp.WithDescription("Report the loaded page, its chunk statistics, and provider readiness"),
	)
}

// createResetSessionTool returns the reset_session tool definition
func createResetSessionTool() mcp.Tool {
	return mcp.NewTool("reset_session",
		mcp.WithDescription("Clear the loaded document set and conversation history"),
	)
}
