package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"forumagent/internal/generator"
	"forumagent/internal/moderation"
	"forumagent/internal/persona"
	"forumagent/internal/resilience"
	"forumagent/internal/store"
)

// fakeTextClient returns scripted responses in order, repeating the last one
// once the script runs out.
type fakeTextClient struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
}

func (f *fakeTextClient) Generate(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func (f *fakeTextClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeQA struct {
	answer string
	err    error
	calls  int
}

func (f *fakeQA) Ask(ctx context.Context, username, game, question string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func testPersonas() []persona.Persona {
	return []persona.Persona{
		{
			Username: "PixelPenny", Role: persona.RoleNovice, SkillLevel: 2,
			Games: []persona.GameAffinity{{Game: "Hollow Depths", Genres: []string{"metroidvania"}}},
		},
		{
			Username: "ApexAlice", Role: persona.RoleExpert, SkillLevel: 9,
			PairedNovice: "PixelPenny",
			Games:        []persona.GameAffinity{{Game: "Hollow Depths", Genres: []string{"metroidvania"}}},
		},
		{
			Username: "GrindstoneGary", Role: persona.RoleNovice, SkillLevel: 3,
			Games: []persona.GameAffinity{{Game: "Hollow Depths"}},
		},
		{
			Username: "TurboTheo", Role: persona.RoleExpert, SkillLevel: 8,
			Games: []persona.GameAffinity{{Game: "Hollow Depths"}},
		},
	}
}

func newTestOrchestrator(t *testing.T, client *fakeTextClient, qa QAClient, blocked ...string) (*Orchestrator, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := persona.NewRegistry(testPersonas())
	gen := generator.New(client, generator.Config{
		DefaultModel:    "tier-default",
		FreshModel:      "tier-fresh",
		KnowledgeCutoff: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ReleaseDates: map[string]time.Time{
			"Hollow Depths": time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		CallTimeout: time.Second,
		Retry:       resilience.RetryConfig{MaxAttempts: 1},
	})

	tuning := DefaultTuning()
	tuning.Retry = resilience.RetryConfig{MaxAttempts: 1}
	return New(st, reg, gen, moderation.NewTermListChecker(blocked...), nil, qa, tuning), st
}

func mustGet(t *testing.T, o *Orchestrator, username string) *persona.Persona {
	t.Helper()
	p, err := o.Registry().Get(username)
	if err != nil {
		t.Fatalf("Get(%s): %v", username, err)
	}
	return p
}

func TestAskQuestionSuccess(t *testing.T) {
	t.Parallel()
	client := &fakeTextClient{responses: []string{"How do I beat the second boss in Hollow Depths?"}}
	qa := &fakeQA{answer: "Dodge left when it rears up, then strike the tail."}
	o, st := newTestOrchestrator(t, client, qa)
	ctx := context.Background()

	res := o.AskQuestion(ctx, mustGet(t, o, "PixelPenny"))
	if !res.Success {
		t.Fatalf("expected success, got %q (%s)", res.Message, res.Err)
	}
	if res.Details["game"] != "Hollow Depths" {
		t.Errorf("details game = %q, want Hollow Depths", res.Details["game"])
	}
	if res.Details["answer"] != qa.answer {
		t.Errorf("details answer = %q, want %q", res.Details["answer"], qa.answer)
	}
	if qa.calls != 1 {
		t.Errorf("qa called %d times, want 1", qa.calls)
	}

	stored, err := st.RecentQuestionsByUser(ctx, "PixelPenny", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("RecentQuestionsByUser: %v", err)
	}
	if len(stored) != 1 || stored[0].Answer != qa.answer {
		t.Errorf("stored questions = %+v, want one with the qa answer", stored)
	}
}

func TestAskQuestionModerationRejected(t *testing.T) {
	t.Parallel()
	client := &fakeTextClient{responses: []string{"Anyone tried the bannedword glitch in this area?"}}
	qa := &fakeQA{answer: "irrelevant"}
	o, st := newTestOrchestrator(t, client, qa, "bannedword")
	ctx := context.Background()

	res := o.AskQuestion(ctx, mustGet(t, o, "PixelPenny"))
	if res.Success {
		t.Fatal("expected moderation rejection")
	}
	if !strings.Contains(res.Details["offending_terms"], "bannedword") {
		t.Errorf("offending_terms = %q, want bannedword", res.Details["offending_terms"])
	}
	if qa.calls != 0 {
		t.Errorf("qa called %d times for rejected content, want 0", qa.calls)
	}
	stored, err := st.RecentQuestionsByUser(ctx, "PixelPenny", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("RecentQuestionsByUser: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("rejected question was persisted: %+v", stored)
	}
}

func TestAskQuestionQAFailure(t *testing.T) {
	t.Parallel()
	client := &fakeTextClient{responses: []string{"What build works best for the frost caves?"}}
	qa := &fakeQA{err: resilience.Permanent(errors.New("qa offline"))}
	o, st := newTestOrchestrator(t, client, qa)
	ctx := context.Background()

	res := o.AskQuestion(ctx, mustGet(t, o, "PixelPenny"))
	if res.Success {
		t.Fatal("expected failure when qa errors")
	}
	stored, err := st.RecentQuestionsByUser(ctx, "PixelPenny", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("RecentQuestionsByUser: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("question persisted despite qa failure: %+v", stored)
	}
}

func TestCreateForumPostCreatesForum(t *testing.T) {
	t.Parallel()
	client := &fakeTextClient{responses: []string{"Finally cleared the sunken archive without the double jump, feels amazing."}}
	o, st := newTestOrchestrator(t, client, &fakeQA{})
	ctx := context.Background()

	res := o.CreateForumPost(ctx, mustGet(t, o, "PixelPenny"))
	if !res.Success {
		t.Fatalf("expected success, got %q (%s)", res.Message, res.Err)
	}

	forums, err := st.AllForums(ctx)
	if err != nil {
		t.Fatalf("AllForums: %v", err)
	}
	if len(forums) != 1 {
		t.Fatalf("forum count = %d, want 1", len(forums))
	}
	if forums[0].Game != "Hollow Depths" || forums[0].Creator != "PixelPenny" {
		t.Errorf("created forum = %+v", forums[0])
	}

	forum, err := st.GetForum(ctx, res.Details["forum_id"])
	if err != nil {
		t.Fatalf("GetForum: %v", err)
	}
	if len(forum.Posts) != 1 || !forum.Posts[0].Simulated {
		t.Errorf("forum posts = %+v, want one simulated post", forum.Posts)
	}
}

func TestCreateForumPostReusesExistingForum(t *testing.T) {
	t.Parallel()
	client := &fakeTextClient{responses: []string{"Picked this back up after a year and the movement still holds up."}}
	o, st := newTestOrchestrator(t, client, &fakeQA{})
	ctx := context.Background()

	if _, err := st.CreateForum(ctx, "Hollow Depths", store.CategoryGeneral, "someone_else"); err != nil {
		t.Fatalf("CreateForum: %v", err)
	}

	res := o.CreateForumPost(ctx, mustGet(t, o, "PixelPenny"))
	if !res.Success {
		t.Fatalf("expected success, got %q (%s)", res.Message, res.Err)
	}
	forums, err := st.AllForums(ctx)
	if err != nil {
		t.Fatalf("AllForums: %v", err)
	}
	if len(forums) != 1 {
		t.Errorf("forum count = %d after posting, want the existing forum reused", len(forums))
	}
}

func TestCreateForumPostRegeneratesSimilarDraft(t *testing.T) {
	t.Parallel()
	duplicate := "The sunken archive sequence completely destroyed my controller yesterday evening."
	fresh := "Which vendor sells upgraded charms before reaching the third region?"
	client := &fakeTextClient{responses: []string{duplicate, fresh}}
	o, st := newTestOrchestrator(t, client, &fakeQA{})
	ctx := context.Background()

	forum, err := st.CreateForum(ctx, "Hollow Depths", store.CategoryGeneral, "someone_else")
	if err != nil {
		t.Fatalf("CreateForum: %v", err)
	}
	if _, err := st.AddPost(ctx, store.Post{ForumID: forum.ID, Author: "someone_else", Body: duplicate}); err != nil {
		t.Fatalf("AddPost: %v", err)
	}

	res := o.CreateForumPost(ctx, mustGet(t, o, "PixelPenny"))
	if !res.Success {
		t.Fatalf("expected success, got %q (%s)", res.Message, res.Err)
	}
	if client.callCount() != 2 {
		t.Errorf("generate called %d times, want 2 (first draft rejected)", client.callCount())
	}
	if res.Details["text"] != fresh {
		t.Errorf("posted text = %q, want the regenerated draft", res.Details["text"])
	}
}

func TestCreateForumPostAvoidsOwnPostsAcrossGames(t *testing.T) {
	t.Parallel()
	recycled := "The sunken archive sequence completely destroyed my controller yesterday evening."
	fresh := "Which vendor sells upgraded charms before reaching the third region?"
	client := &fakeTextClient{responses: []string{recycled, fresh}}
	o, st := newTestOrchestrator(t, client, &fakeQA{})
	ctx := context.Background()

	// The persona already posted this text under a different game.
	other, err := st.CreateForum(ctx, "Starlight Drifter", store.CategoryGeneral, "PixelPenny")
	if err != nil {
		t.Fatalf("CreateForum: %v", err)
	}
	if _, err := st.AddPost(ctx, store.Post{ForumID: other.ID, Author: "PixelPenny", Simulated: true, Body: recycled}); err != nil {
		t.Fatalf("AddPost: %v", err)
	}

	res := o.CreateForumPost(ctx, mustGet(t, o, "PixelPenny"))
	if !res.Success {
		t.Fatalf("expected success, got %q (%s)", res.Message, res.Err)
	}
	if client.callCount() != 2 {
		t.Errorf("generate called %d times, want 2 (recycled draft rejected)", client.callCount())
	}
	if res.Details["text"] != fresh {
		t.Errorf("posted text = %q, want the regenerated draft", res.Details["text"])
	}
}

func TestCreateForumPostAcceptsLastDraft(t *testing.T) {
	t.Parallel()
	duplicate := "The sunken archive sequence completely destroyed my controller yesterday evening."
	client := &fakeTextClient{responses: []string{duplicate}}
	o, st := newTestOrchestrator(t, client, &fakeQA{})
	ctx := context.Background()

	forum, err := st.CreateForum(ctx, "Hollow Depths", store.CategoryGeneral, "someone_else")
	if err != nil {
		t.Fatalf("CreateForum: %v", err)
	}
	if _, err := st.AddPost(ctx, store.Post{ForumID: forum.ID, Author: "someone_else", Body: duplicate}); err != nil {
		t.Fatalf("AddPost: %v", err)
	}

	res := o.CreateForumPost(ctx, mustGet(t, o, "PixelPenny"))
	if !res.Success {
		t.Fatalf("last draft should be accepted, got %q (%s)", res.Message, res.Err)
	}
	if client.callCount() != o.tuning.MaxDraftAttempts {
		t.Errorf("generate called %d times, want %d", client.callCount(), o.tuning.MaxDraftAttempts)
	}
	if res.Details["text"] != duplicate {
		t.Errorf("posted text = %q, want the final draft", res.Details["text"])
	}
}

func TestReplyTargetsPairedNovice(t *testing.T) {
	t.Parallel()
	client := &fakeTextClient{responses: []string{"Try resting at the bench first, then the fight resets its pattern."}}
	o, st := newTestOrchestrator(t, client, &fakeQA{})
	ctx := context.Background()

	forum, err := st.CreateForum(ctx, "Hollow Depths", store.CategoryHelp, "PixelPenny")
	if err != nil {
		t.Fatalf("CreateForum: %v", err)
	}
	now := time.Now().UTC()
	paired, err := st.AddPost(ctx, store.Post{
		ForumID: forum.ID, Author: "PixelPenny", Simulated: true,
		Body: "Stuck on the bell guardian again, any advice?", CreatedAt: now.Add(-2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("AddPost: %v", err)
	}
	// A newer novice post must not outrank the paired novice.
	if _, err := st.AddPost(ctx, store.Post{
		ForumID: forum.ID, Author: "GrindstoneGary", Simulated: true,
		Body: "What does the old key even open?", CreatedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("AddPost: %v", err)
	}

	res := o.ReplyToPost(ctx, mustGet(t, o, "ApexAlice"))
	if !res.Success {
		t.Fatalf("expected success, got %q (%s)", res.Message, res.Err)
	}
	if res.Details["target_user"] != "PixelPenny" {
		t.Errorf("target_user = %q, want PixelPenny", res.Details["target_user"])
	}
	if res.Details["reply_to"] != paired.ID {
		t.Errorf("reply_to = %q, want %q", res.Details["reply_to"], paired.ID)
	}
	if !strings.HasPrefix(res.Details["text"], "@PixelPenny ") {
		t.Errorf("reply text %q should open with an @mention", res.Details["text"])
	}
}

func TestReplyPrefersSimulatedOverHuman(t *testing.T) {
	t.Parallel()
	client := &fakeTextClient{responses: []string{"The drop rate improves a lot once you equip the lantern charm."}}
	o, st := newTestOrchestrator(t, client, &fakeQA{})
	ctx := context.Background()

	forum, err := st.CreateForum(ctx, "Hollow Depths", store.CategoryGameplay, "TurboTheo")
	if err != nil {
		t.Fatalf("CreateForum: %v", err)
	}
	now := time.Now().UTC()
	simulated, err := st.AddPost(ctx, store.Post{
		ForumID: forum.ID, Author: "TurboTheo", Simulated: true,
		Body: "Farming pale ore is still miserable in the late game.", CreatedAt: now.Add(-3 * time.Hour),
	})
	if err != nil {
		t.Fatalf("AddPost: %v", err)
	}
	if _, err := st.AddPost(ctx, store.Post{
		ForumID: forum.ID, Author: "random_human",
		Body: "same here honestly", CreatedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("AddPost: %v", err)
	}

	res := o.ReplyToPost(ctx, mustGet(t, o, "PixelPenny"))
	if !res.Success {
		t.Fatalf("expected success, got %q (%s)", res.Message, res.Err)
	}
	if res.Details["target_user"] != "TurboTheo" {
		t.Errorf("target_user = %q, want the simulated author", res.Details["target_user"])
	}
	if res.Details["reply_to"] != simulated.ID {
		t.Errorf("reply_to = %q, want %q", res.Details["reply_to"], simulated.ID)
	}
}

func TestReplyPrefersContentBearingHumanPost(t *testing.T) {
	t.Parallel()
	client := &fakeTextClient{responses: []string{"That boss gets much easier with the quick-focus upgrade equipped."}}
	o, st := newTestOrchestrator(t, client, &fakeQA{})
	ctx := context.Background()

	forum, err := st.CreateForum(ctx, "Hollow Depths", store.CategoryHelp, "random_human")
	if err != nil {
		t.Fatalf("CreateForum: %v", err)
	}
	now := time.Now().UTC()
	content, err := st.AddPost(ctx, store.Post{
		ForumID: forum.ID, Author: "chatty_human",
		Body: "I cannot get past the watcher knights, any tips?", CreatedAt: now.Add(-2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("AddPost: %v", err)
	}
	if _, err := st.AddPost(ctx, store.Post{
		ForumID: forum.ID, Author: "lurker_human",
		Body: "   ", CreatedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("AddPost: %v", err)
	}

	res := o.ReplyToPost(ctx, mustGet(t, o, "PixelPenny"))
	if !res.Success {
		t.Fatalf("expected success, got %q (%s)", res.Message, res.Err)
	}
	if res.Details["target_user"] != "chatty_human" {
		t.Errorf("target_user = %q, want the content-bearing human", res.Details["target_user"])
	}
	if res.Details["reply_to"] != content.ID {
		t.Errorf("reply_to = %q, want %q", res.Details["reply_to"], content.ID)
	}
}

func TestReplyNoTargets(t *testing.T) {
	t.Parallel()
	client := &fakeTextClient{responses: []string{"unused"}}
	o, _ := newTestOrchestrator(t, client, &fakeQA{})

	res := o.ReplyToPost(context.Background(), mustGet(t, o, "ApexAlice"))
	if res.Success {
		t.Fatal("expected failure with nothing to reply to")
	}
	if client.callCount() != 0 {
		t.Errorf("generate called %d times with no target, want 0", client.callCount())
	}
}

func TestFindOrCreateForumPriority(t *testing.T) {
	t.Parallel()
	o, st := newTestOrchestrator(t, &fakeTextClient{responses: []string{"unused"}}, &fakeQA{})
	ctx := context.Background()
	p := mustGet(t, o, "PixelPenny")

	other, err := st.CreateForum(ctx, "Hollow Depths", store.CategoryGameplay, "someone_else")
	if err != nil {
		t.Fatalf("CreateForum: %v", err)
	}
	own, err := st.CreateForum(ctx, "Hollow Depths", store.CategoryHelp, "PixelPenny")
	if err != nil {
		t.Fatalf("CreateForum: %v", err)
	}

	// Category match beats ownership.
	got, err := o.findOrCreateForum(ctx, p, "Hollow Depths", store.CategoryGameplay)
	if err != nil {
		t.Fatalf("findOrCreateForum: %v", err)
	}
	if got.ID != other.ID {
		t.Errorf("gameplay request resolved to %s, want the matching-category forum %s", got.ID, other.ID)
	}

	// No category match: the user's own forum wins over a stranger's.
	got, err = o.findOrCreateForum(ctx, p, "Hollow Depths", store.CategoryMods)
	if err != nil {
		t.Fatalf("findOrCreateForum: %v", err)
	}
	if got.ID != own.ID {
		t.Errorf("mods request resolved to %s, want the user's own forum %s", got.ID, own.ID)
	}

	// Unknown game: a forum gets created.
	got, err = o.findOrCreateForum(ctx, p, "Starlight Drift", store.CategoryGeneral)
	if err != nil {
		t.Fatalf("findOrCreateForum: %v", err)
	}
	if got.Game != "Starlight Drift" || got.Creator != "PixelPenny" {
		t.Errorf("created forum = %+v", got)
	}
}

func TestUnderusedOpeners(t *testing.T) {
	t.Parallel()
	o, _ := newTestOrchestrator(t, &fakeTextClient{responses: []string{"unused"}}, &fakeQA{})

	recent := []store.Question{
		{Body: "How do I open the gate?"},
		{Body: "How long is the campaign?"},
		{Body: "What happens after the credits?"},
	}
	got := o.underusedOpeners(recent)
	if len(got) != 3 {
		t.Fatalf("openers = %v, want 3", got)
	}
	for _, opener := range got {
		if opener == "How" || opener == "What" {
			t.Errorf("overused opener %q suggested", opener)
		}
	}
}

func TestTooSimilar(t *testing.T) {
	t.Parallel()
	o, _ := newTestOrchestrator(t, &fakeTextClient{responses: []string{"unused"}}, &fakeQA{})

	prior := []string{"Chapter 4 has the worst boss fight in the whole game."}
	tests := []struct {
		name   string
		draft  string
		reason string
	}{
		{"near duplicate", "Chapter 4 has the worst boss fight in the game.", "similarity"},
		{"chapter collision", "Is there a shortcut anywhere in chapter 4?", "chapter/level collision"},
		{"topic collision", "Which boss fight took everyone the longest to clear?", "topic collision"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			similar, reason := o.tooSimilar(tc.draft, prior)
			if !similar || reason != tc.reason {
				t.Errorf("tooSimilar(%q) = %v %q, want true %q", tc.draft, similar, reason, tc.reason)
			}
		})
	}

	if similar, reason := o.tooSimilar("Does the soundtrack change between regions?", prior); similar {
		t.Errorf("unrelated draft flagged as %q", reason)
	}
}
