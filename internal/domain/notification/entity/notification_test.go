package entity

import "testing"

func TestDescribe(t *testing.T) {
	alice := &Actor{Username: "alice"}

	tests := []struct {
		name string
		n    Notification
		want Display
	}{
		{"like", Notification{Type: TypeLike, Actor: alice}, Display{"heart", "alice liked your post"}},
		{"comment", Notification{Type: TypeComment, Actor: alice}, Display{"message-circle", "alice commented on your post"}},
		{"follow", Notification{Type: TypeFollow, Actor: alice}, Display{"user-check", "alice started following you"}},
		{"request", Notification{Type: TypeFollowRequest, Actor: alice}, Display{"user-plus", "alice requested to follow you"}},
		{"accepted", Notification{Type: TypeFollowAccepted, Actor: alice}, Display{"user-check", "alice accepted your follow request"}},
		{"post", Notification{Type: TypePost, Actor: alice}, Display{"image", "alice shared a new post"}},
		{"missing actor", Notification{Type: TypeLike}, Display{"heart", "Someone liked your post"}},
		{"unknown", Notification{Type: "mention", Actor: alice}, Display{"bell", "New notification"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.n); got != tt.want {
				t.Fatalf("Describe() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name string
		n    Notification
		want string
	}{
		{"post reference wins", Notification{Type: TypeFollow, PostID: "p1"}, "/"},
		{"like on post", Notification{Type: TypeLike, PostID: "p1"}, "/"},
		{"follow", Notification{Type: TypeFollow}, "/profile"},
		{"follow request", Notification{Type: TypeFollowRequest}, "/profile"},
		{"accepted has no route", Notification{Type: TypeFollowAccepted}, ""},
		{"unknown", Notification{Type: "mention"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Route(tt.n); got != tt.want {
				t.Fatalf("Route() = %q, want %q", got, tt.want)
			}
		})
	}
}
