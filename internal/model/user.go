package model

// Role はユーザーの権限区分を表す。
type Role string

const (
	// RoleUser は一般ユーザー。自分の掲載のみ削除できる。
	RoleUser Role = "USER"
	// RoleAdmin は管理者。任意の掲載を削除できる。
	RoleAdmin Role = "ADMIN"
)

// User はシート側の認証コラボレータで確認されたユーザーを表す。
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Role        Role   `json:"role"`
}

// Session はログイン済みユーザーのセッションを表す。
type Session struct {
	ID     string
	UserID string
	User   User
}
