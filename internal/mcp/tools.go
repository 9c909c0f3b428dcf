package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/rememberd/internal/engine"
)

type rememberInput struct {
	Query          string   `json:"query" jsonschema:"required,The question to answer from memory"`
	ConversationID string   `json:"conversation_id,omitempty" jsonschema:"Conversation to continue (empty starts a new one)"`
	TopK           int      `json:"top_k,omitempty" jsonschema:"Maximum memories to retrieve (default: 5)"`
	Style          string   `json:"style,omitempty" jsonschema:"Synthesis style: empty for concise, deep for the slower model, chronological for timeline order"`
	Tags           []string `json:"tags,omitempty" jsonschema:"Tags attached to the query when it is stored as a memory"`
}

type rememberOutput struct {
	ConversationID    string   `json:"conversation_id" jsonschema:"Conversation identifier for follow-up calls"`
	ResponseTurnID    string   `json:"response_turn_id" jsonschema:"Identifier of the synthesized response turn"`
	Response          string   `json:"response" jsonschema:"Synthesized answer"`
	ModelUsed         string   `json:"model_used" jsonschema:"Model that produced the answer"`
	TokensUsed        *int     `json:"tokens_used,omitempty" jsonschema:"Completion tokens consumed"`
	RetrievedEvidence []string `json:"retrieved_evidence" jsonschema:"Item ids used as evidence"`
}

type feedbackInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"required,Conversation whose last response receives the feedback"`
	Feedback       string `json:"feedback" jsonschema:"required,Free-text feedback on the last response"`
}

type feedbackOutput struct {
	ResponseTurnID   string  `json:"response_turn_id" jsonschema:"Response turn the feedback applied to"`
	SynthesisQuality float64 `json:"synthesis_quality" jsonschema:"Derived quality score in [0,1]"`
	Corrected        bool    `json:"corrected" jsonschema:"Whether the feedback read as a correction"`
}

type memoryWriteInput struct {
	Text string   `json:"text" jsonschema:"required,Content to store as a memory item"`
	Tags []string `json:"tags,omitempty" jsonschema:"Tags for attribute filtering"`
}

type memoryWriteOutput struct {
	ItemID string `json:"item_id" jsonschema:"Identifier of the stored item"`
}

type conversationGetInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"required,Conversation to fetch"`
}

type conversationTurn struct {
	TurnID    string `json:"turn_id"`
	Seq       int64  `json:"seq"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type conversationGetOutput struct {
	ConversationID string             `json:"conversation_id"`
	Turns          []conversationTurn `json:"turns" jsonschema:"Turns in ascending order; empty for an unknown conversation"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "remember",
		Description: "Answer a question from stored memories. Retrieves relevant items by semantic and lexical similarity, synthesizes an answer, and records the exchange. Pass conversation_id from a previous call to continue that conversation; follow-up timing feeds the quality feedback loop.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args rememberInput) (*mcp.CallToolResult, rememberOutput, error) {
		resp, err := s.engine.Remember(ctx, engine.Request{
			ConversationID: args.ConversationID,
			Query:          args.Query,
			TopK:           args.TopK,
			Style:          args.Style,
			Tags:           args.Tags,
		})
		if err != nil {
			return nil, rememberOutput{}, fmt.Errorf("remember failed: %w", err)
		}

		output := rememberOutput{
			ConversationID:    resp.ConversationID,
			ResponseTurnID:    resp.ResponseTurnID,
			Response:          resp.ResponseText,
			ModelUsed:         resp.ModelUsed,
			TokensUsed:        resp.TokensUsed,
			RetrievedEvidence: resp.RetrievedEvidence,
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: resp.ResponseText},
			},
		}, output, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "remember_feedback",
		Description: "Attach explicit feedback to the most recent response in a conversation. The feedback text is scored for corrections and acknowledgements and closes the response's pending quality record.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args feedbackInput) (*mcp.CallToolResult, feedbackOutput, error) {
		rec, err := s.engine.Feedback(ctx, args.ConversationID, args.Feedback)
		if err != nil {
			return nil, feedbackOutput{}, fmt.Errorf("feedback failed: %w", err)
		}

		output := feedbackOutput{
			ResponseTurnID:   rec.ResponseTurnID,
			SynthesisQuality: rec.SynthesisQuality,
			Corrected:        rec.Corrected != nil,
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf(
					"Feedback recorded for turn %s (quality %.2f).",
					rec.ResponseTurnID, rec.SynthesisQuality,
				)},
			},
		}, output, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_write",
		Description: "Store a note directly as a memory item, outside any conversation. Use for facts worth recalling later.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args memoryWriteInput) (*mcp.CallToolResult, memoryWriteOutput, error) {
		id, err := s.engine.Write(ctx, args.Text, args.Tags)
		if err != nil {
			return nil, memoryWriteOutput{}, fmt.Errorf("memory write failed: %w", err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Stored memory item %s.", id)},
			},
		}, memoryWriteOutput{ItemID: id}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "conversation_get",
		Description: "Fetch the full transcript of a conversation, including per-turn metrics.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args conversationGetInput) (*mcp.CallToolResult, conversationGetOutput, error) {
		turns, err := s.engine.Turns(ctx, args.ConversationID)
		if err != nil {
			return nil, conversationGetOutput{}, fmt.Errorf("conversation get failed: %w", err)
		}

		output := conversationGetOutput{
			ConversationID: args.ConversationID,
			Turns:          make([]conversationTurn, len(turns)),
		}
		for i, turn := range turns {
			output.Turns[i] = conversationTurn{
				TurnID:    turn.TurnID,
				Seq:       turn.Seq,
				Role:      string(turn.Role),
				Content:   turn.Content,
				CreatedAt: turn.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			}
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Conversation %s has %d turns.", args.ConversationID, len(turns))},
			},
		}, output, nil
	})
}
