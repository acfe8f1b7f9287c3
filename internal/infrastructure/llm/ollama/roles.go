package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

// nameList accepts a JSON array, a comma-separated string or "NONE".
type nameList []string

func (n *nameList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*n = cleanNames(list)
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = splitNames(raw)
	return nil
}

type routerReply struct {
	Category  string   `json:"category"`
	Colleges  nameList `json:"college_names"`
	Exams     nameList `json:"exam_names"`
	Location  string   `json:"location"`
	RankScore string   `json:"rank_score"`
}

func (r routerReply) entities() domain.EntitySet {
	return domain.EntitySet{
		Colleges:  r.Colleges,
		Exams:     r.Exams,
		Location:  noneToEmpty(r.Location),
		RankScore: noneToEmpty(r.RankScore),
	}
}

func (c *Classifier) ClassifyQuery(ctx context.Context, text string) (domain.Category, domain.EntitySet, error) {
	respText, err := c.client.routerCall(ctx, "classify", buildRouterPrompt(text), true, 200)
	if err != nil {
		return "", domain.EntitySet{}, err
	}

	reply, err := parseRouterReply(respText)
	if err != nil {
		return "", domain.EntitySet{}, err
	}
	category, ok := domain.ParseCategory(reply.Category)
	if !ok {
		return "", domain.EntitySet{}, fmt.Errorf("router returned unknown category %q", reply.Category)
	}
	return category, reply.entities(), nil
}

// parseRouterReply reads the JSON object first and falls back to
// "KEY: value" lines for models that ignore the requested format.
func parseRouterReply(raw string) (routerReply, error) {
	var reply routerReply
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &reply); err == nil && reply.Category != "" {
		return reply, nil
	}

	reply = routerReply{}
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "CATEGORY":
			reply.Category = value
		case "COLLEGE_NAMES":
			reply.Colleges = splitNames(value)
		case "EXAM_NAMES":
			reply.Exams = splitNames(value)
		case "LOCATION":
			reply.Location = value
		case "RANK_SCORE":
			reply.RankScore = value
		}
	}
	if reply.Category == "" {
		return routerReply{}, errors.New("parse router reply: no category")
	}
	return reply, nil
}

func splitNames(raw string) []string {
	if noneToEmpty(raw) == "" {
		return nil
	}
	return cleanNames(strings.Split(raw, ","))
}

func cleanNames(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = noneToEmpty(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}

func noneToEmpty(value string) string {
	value = strings.TrimSpace(value)
	switch strings.ToUpper(value) {
	case "NONE", "NULL", "N/A":
		return ""
	}
	return value
}

type RelevanceJudge struct {
	client *Client
}

func NewRelevanceJudge(client *Client) *RelevanceJudge {
	return &RelevanceJudge{client: client}
}

func (j *RelevanceJudge) CheckRelevance(ctx context.Context, text string, docs []domain.RetrievedDocument) (domain.RelevanceVerdict, error) {
	if len(docs) == 0 {
		return domain.VerdictInadequate, nil
	}
	reply, err := j.client.routerCall(ctx, "relevance", buildRelevancePrompt(text, docs), false, 5)
	if err != nil {
		return "", err
	}
	return domain.ParseVerdict(reply), nil
}

type Rewriter struct {
	client *Client
}

func NewRewriter(client *Client) *Rewriter {
	return &Rewriter{client: client}
}

func (r *Rewriter) Rewrite(ctx context.Context, text string, category domain.Category) (string, error) {
	reply, err := r.client.routerCall(ctx, "rewrite", buildRewritePrompt(text, category), false, 40)
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(reply), "\n")
	line = strings.Trim(strings.TrimSpace(line), "\"'`")
	if words := strings.Fields(line); len(words) > rewriteMaxWords {
		line = strings.Join(words[:rewriteMaxWords], " ")
	}
	return line, nil
}
