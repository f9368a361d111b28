package model

import "strings"

// Ownerはカート/注文の持ち主。ログイン済みアカウントか匿名セッションのどちらか一方。
type Owner struct {
	AccountID string
	SessionID string
}

func AccountOwner(accountID string) Owner {
	return Owner{AccountID: strings.TrimSpace(accountID)}
}

func SessionOwner(sessionID string) Owner {
	return Owner{SessionID: strings.TrimSpace(sessionID)}
}

// Validは片方だけ埋まっているときtrue
func (o Owner) Valid() bool {
	return (o.AccountID == "") != (o.SessionID == "")
}

// Keyはキャッシュキーやログ用の文字列
func (o Owner) Key() string {
	if o.AccountID != "" {
		return "account:" + o.AccountID
	}
	return "session:" + o.SessionID
}

// DBの列値（NULL許容）
func (o Owner) AccountPtr() *string {
	if o.AccountID == "" {
		return nil
	}
	v := o.AccountID
	return &v
}

func (o Owner) SessionPtr() *string {
	if o.SessionID == "" {
		return nil
	}
	v := o.SessionID
	return &v
}

func ownerFrom(accountID, sessionID *string) Owner {
	var o Owner
	if accountID != nil {
		o.AccountID = *accountID
	}
	if sessionID != nil {
		o.SessionID = *sessionID
	}
	return o
}
