// Command client is a terminal front end for the calendar-chat server:
// login, the month calendar, event details with editing and invitations,
// friends, and a live per-event chat over the shared socket.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/R-koma/calendar-chat/internal/api"
	"github.com/R-koma/calendar-chat/internal/chat"
	"github.com/R-koma/calendar-chat/internal/config"
	"github.com/R-koma/calendar-chat/internal/directory"
	"github.com/R-koma/calendar-chat/internal/eventflow"
	"github.com/R-koma/calendar-chat/internal/friends"
	"github.com/R-koma/calendar-chat/internal/logger"
	"github.com/R-koma/calendar-chat/internal/model"
	"github.com/R-koma/calendar-chat/internal/realtime"
	"github.com/R-koma/calendar-chat/internal/session"
)

type app struct {
	api      *api.Client
	sess     *session.Context
	registry *friends.Registry
	dir      *directory.Directory
	flow     *eventflow.Workflow
	in       *bufio.Scanner

	// conn is the shared chat socket, dialed once per login session and
	// reused across room switches. Never one connection per room.
	conn *realtime.Conn
}

func main() {
	logger.SetPrefix("client")
	cfg := config.Load()

	client, err := api.New(cfg.APIBaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	a := &app{
		api:      client,
		sess:     session.New(client),
		registry: friends.NewRegistry(client),
		dir:      directory.NewCurrentMonth(client, time.Now()),
		in:       bufio.NewScanner(os.Stdin),
	}
	a.flow = eventflow.New(client, a.dir, a.registry)

	// An expired or revoked cookie on any call drops back to the login view.
	// The chat socket authenticates with the same cookie, so it goes too.
	client.SetOnUnauthorized(func() {
		a.sess.Clear()
		a.disconnect()
		fmt.Println("セッションの有効期限が切れました。再度ログインしてください。")
	})

	ctx := context.Background()
	defer a.disconnect()
	for {
		if _, err := a.sess.Current(); err != nil {
			if !a.loginView(ctx) {
				return
			}
		}
		if !a.mainView(ctx) {
			return
		}
	}
}

func (a *app) prompt(label string) (string, bool) {
	fmt.Print(label)
	if !a.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(a.in.Text()), true
}

// loginView loops until a login succeeds. Returns false on EOF.
func (a *app) loginView(ctx context.Context) bool {
	for {
		cmd, ok := a.prompt("[login] login / register / quit > ")
		if !ok {
			return false
		}
		switch cmd {
		case "login":
			email, ok := a.prompt("email: ")
			if !ok {
				return false
			}
			password, ok := a.prompt("password: ")
			if !ok {
				return false
			}
			if err := a.sess.Login(ctx, email, password); err != nil {
				fmt.Println(err)
				continue
			}
			if err := a.registry.Load(ctx); err != nil {
				fmt.Println(err)
			}
			if err := a.dir.Refresh(ctx); err != nil {
				fmt.Println(err)
			}
			if a.ensureConn(ctx) == nil {
				fmt.Println("チャットに接続できませんでした。")
			}
			return true
		case "register":
			username, ok := a.prompt("username: ")
			if !ok {
				return false
			}
			email, ok := a.prompt("email: ")
			if !ok {
				return false
			}
			password, ok := a.prompt("password: ")
			if !ok {
				return false
			}
			if err := a.sess.Register(ctx, username, email, password); err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Println("登録が完了しました。ログインしてください。")
		case "quit", "q":
			return false
		}
	}
}

// mainView is the calendar screen. Returns false to exit the program, true
// to fall back to loginView.
func (a *app) mainView(ctx context.Context) bool {
	a.printMonth()
	for {
		cmd, ok := a.prompt("> ")
		if !ok {
			return false
		}
		if _, err := a.sess.Current(); err != nil {
			return true
		}
		fields := strings.Fields(cmd)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "help":
			fmt.Println("month <m> <y> | list | open <id> | new | invites | friends | search <q> | requests | logout | quit")
		case "month":
			if len(fields) != 3 {
				fmt.Println("usage: month <1-12> <year>")
				continue
			}
			m, _ := strconv.Atoi(fields[1])
			y, _ := strconv.Atoi(fields[2])
			if err := a.dir.SetMonth(ctx, m, y); err != nil {
				fmt.Println(err)
				continue
			}
			a.printMonth()
		case "list":
			a.printMonth()
		case "open":
			if len(fields) != 2 {
				fmt.Println("usage: open <event-id>")
				continue
			}
			id, _ := strconv.Atoi(fields[1])
			if !a.eventView(ctx, id) {
				return false
			}
		case "new":
			a.createEvent(ctx)
			a.printMonth()
		case "invites":
			a.invitesView(ctx)
			a.printMonth()
		case "friends":
			for _, f := range a.registry.List() {
				fmt.Printf("  %d  %s <%s>\n", f.ID, f.Username, f.Email)
			}
		case "search":
			if len(fields) < 2 {
				fmt.Println("usage: search <query>")
				continue
			}
			a.searchUsers(ctx, strings.Join(fields[1:], " "))
		case "requests":
			a.friendRequestsView(ctx)
		case "logout":
			if err := a.sess.Logout(ctx); err != nil {
				fmt.Println(err)
			}
			a.disconnect()
			return true
		case "quit", "q":
			return false
		}
	}
}

func (a *app) printMonth() {
	m, y := a.dir.Month()
	fmt.Printf("--- %d/%02d ---\n", y, m)
	for _, ev := range a.dir.Events() {
		fmt.Printf("  %d  %s  %s\n", ev.ID, chat.FormatDate(ev.EventDate), ev.EventName)
	}
}

// eventView shows one event and its chat. Returns false on EOF.
func (a *app) eventView(ctx context.Context, eventID int) bool {
	detail, err := a.flow.Open(ctx, eventID)
	if err != nil {
		fmt.Println(err)
		return true
	}
	a.printDetail(detail)
	defer a.flow.Close()

	for {
		cmd, ok := a.prompt("[event] chat / edit / invite / delete / back > ")
		if !ok {
			return false
		}
		switch cmd {
		case "chat":
			if !a.chatView(ctx, eventID) {
				return false
			}
		case "edit":
			a.editEvent(ctx)
		case "invite":
			a.inviteFriends(ctx)
		case "delete":
			yes, ok := a.prompt("本当に削除しますか? (yes/no): ")
			if !ok {
				return false
			}
			if yes != "yes" {
				continue
			}
			if err := a.flow.Delete(ctx); err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Println("イベントを削除しました。")
			return true
		case "back", "b":
			return true
		}
	}
}

func (a *app) printDetail(d *model.EventDetail) {
	fmt.Printf("== %s ==\n", d.EventName)
	fmt.Printf("日付: %s  時間: %s  場所: %s\n", chat.FormatDate(d.EventDate), d.MeetingTime, d.MeetingPlace)
	if d.Description != "" {
		fmt.Println(d.Description)
	}
	names := make([]string, len(d.Participants))
	for i, p := range d.Participants {
		names[i] = p.Username
	}
	fmt.Printf("参加者: %s\n", strings.Join(names, ", "))
}

// ensureConn returns the shared chat socket, dialing it on first use after
// login. It stays open until logout or program exit.
func (a *app) ensureConn(ctx context.Context) *realtime.Conn {
	if a.conn == nil {
		conn, err := realtime.Dial(ctx, a.api.WSURL(), a.api.WSHeader())
		if err != nil {
			return nil
		}
		a.conn = conn
	}
	return a.conn
}

func (a *app) disconnect() {
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
}

// chatView joins the event's room on the shared socket, prints live messages
// and sends input lines until "/leave".
func (a *app) chatView(ctx context.Context, eventID int) bool {
	conn := a.ensureConn(ctx)
	if conn == nil {
		fmt.Println("チャットに接続できませんでした。")
		return true
	}

	cs := chat.NewSession(conn, a.api)
	cs.SetOnMessage(func(m model.Message) {
		fmt.Printf("[%s] %s: %s\n", chat.FormatTime(m.Timestamp), m.User, m.Message)
	})
	cs.SetOnError(func(msg string) {
		fmt.Println(msg)
	})
	if err := cs.Open(ctx, eventID); err != nil {
		fmt.Println("チャットルームに参加できませんでした。")
		return true
	}
	defer cs.Leave()

	// Give the history fetch a moment, then print it grouped by day.
	time.Sleep(300 * time.Millisecond)
	for _, group := range chat.GroupByDay(cs.Messages()) {
		fmt.Printf("--- %s ---\n", group.Date)
		for _, m := range group.Messages {
			fmt.Printf("[%s] %s: %s\n", chat.FormatTime(m.Timestamp), m.User, m.Message)
		}
	}

	for {
		line, ok := a.prompt("")
		if !ok {
			return false
		}
		if line == "/leave" {
			return true
		}
		if err := cs.Send(line); err != nil {
			fmt.Println("メッセージを送信できませんでした。")
		}
	}
}

func (a *app) editEvent(ctx context.Context) {
	user, err := a.sess.Current()
	if err != nil {
		return
	}
	if err := a.flow.StartEdit(user); err != nil {
		fmt.Println("イベントを編集できるのは作成者のみです。")
		return
	}
	var req api.UpdateEventRequest
	if v, ok := a.prompt("イベント名 (空で変更なし): "); ok && v != "" {
		req.EventName = &v
	}
	if v, ok := a.prompt("時間 (空で変更なし): "); ok && v != "" {
		req.MeetingTime = &v
	}
	if v, ok := a.prompt("場所 (空で変更なし): "); ok && v != "" {
		req.MeetingPlace = &v
	}
	if v, ok := a.prompt("説明 (空で変更なし): "); ok && v != "" {
		req.Description = &v
	}
	if err := a.flow.Update(ctx, req); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("イベントを更新しました。")
}

func (a *app) inviteFriends(ctx context.Context) {
	if err := a.flow.StartInvite(); err != nil {
		return
	}
	candidates := a.flow.InviteCandidates()
	if len(candidates) == 0 {
		fmt.Println("招待できる友達がいません。")
		return
	}
	for _, f := range candidates {
		fmt.Printf("  %d  %s\n", f.ID, f.Username)
	}
	line, ok := a.prompt("招待する友達のID (カンマ区切り): ")
	if !ok || line == "" {
		return
	}
	selected := pickUsers(candidates, line)
	if err := a.flow.Invite(ctx, selected); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("招待を送りました。")
}

func (a *app) createEvent(ctx context.Context) {
	var form eventflow.CreateForm
	form.EventName, _ = a.prompt("イベント名: ")
	form.EventDate, _ = a.prompt("日付 (YYYY-MM-DD): ")
	form.MeetingTime, _ = a.prompt("時間: ")
	form.MeetingPlace, _ = a.prompt("場所: ")
	form.Description, _ = a.prompt("説明: ")

	if friends := a.registry.List(); len(friends) > 0 {
		for _, f := range friends {
			fmt.Printf("  %d  %s\n", f.ID, f.Username)
		}
		if line, ok := a.prompt("招待する友達のID (カンマ区切り、空でなし): "); ok && line != "" {
			form.Invitees = pickUsers(friends, line)
		}
	}

	if err := a.flow.Create(ctx, &form); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("イベントを作成しました。")
}

func (a *app) invitesView(ctx context.Context) {
	invites, err := a.flow.LoadInvites(ctx)
	if err != nil {
		fmt.Println(err)
		return
	}
	if len(invites) == 0 {
		fmt.Println("保留中の招待はありません。")
		return
	}
	for _, inv := range invites {
		// Placeholder detail until the event is accepted and fetched properly.
		d := inv.Detail()
		fmt.Printf("  %d  %s  %s (from %s)\n", d.ID, chat.FormatDate(d.EventDate), d.EventName, inv.InvitedBy)
		if d.MeetingTime != "" || d.MeetingPlace != "" {
			fmt.Printf("      %s %s\n", d.MeetingTime, d.MeetingPlace)
		}
	}
	line, ok := a.prompt("respond <event-id> <accept|decline> (空で戻る): ")
	if !ok || line == "" {
		return
	}
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "respond" {
		return
	}
	id, _ := strconv.Atoi(fields[1])
	if err := a.flow.Respond(ctx, id, fields[2] == "accept"); err != nil {
		fmt.Println(err)
	}
}

func (a *app) searchUsers(ctx context.Context, query string) {
	users, err := a.api.SearchUsers(ctx, query)
	if err != nil {
		fmt.Println("ユーザーの検索に失敗しました。")
		return
	}
	for _, u := range users {
		fmt.Printf("  %d  %s <%s>\n", u.ID, u.Username, u.Email)
	}
	line, ok := a.prompt("add <user-id> (空で戻る): ")
	if !ok || line == "" {
		return
	}
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != "add" {
		return
	}
	id, _ := strconv.Atoi(fields[1])
	if err := a.api.SendFriendRequest(ctx, id); err != nil {
		var se *api.StatusError
		if errors.As(err, &se) && se.Message != "" {
			fmt.Println(se.Message)
			return
		}
		fmt.Println("リクエストの送信に失敗しました。")
		return
	}
	fmt.Println("リクエストを送りました。")
}

func (a *app) friendRequestsView(ctx context.Context) {
	reqs, err := a.api.FriendRequests(ctx)
	if err != nil {
		fmt.Println("リクエストの取得に失敗しました。")
		return
	}
	if len(reqs) == 0 {
		fmt.Println("保留中のリクエストはありません。")
		return
	}
	for _, r := range reqs {
		fmt.Printf("  %d  %s\n", r.ID, r.SenderUsername)
	}
	line, ok := a.prompt("<request-id> <accept|reject> (空で戻る): ")
	if !ok || line == "" {
		return
	}
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return
	}
	id, _ := strconv.Atoi(fields[0])
	action := model.ActionReject
	if fields[1] == "accept" {
		action = model.ActionAccept
	}
	friend, err := a.api.RespondToFriendRequest(ctx, id, action)
	if err != nil {
		fmt.Println("リクエストの処理に失敗しました。")
		return
	}
	if friend != nil {
		a.registry.Add(*friend)
		fmt.Printf("%s さんと友達になりました。\n", friend.Username)
	}
}

// pickUsers resolves a comma separated id list against candidates, ignoring
// ids that are not in the list.
func pickUsers(candidates []model.User, line string) []model.User {
	byID := make(map[int]model.User, len(candidates))
	for _, u := range candidates {
		byID[u.ID] = u
	}
	var out []model.User
	for _, part := range strings.Split(line, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out
}
