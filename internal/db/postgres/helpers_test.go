package postgres_test

import (
	iauth "serotonyl.ru/gift-ledger/internal/auth"
	"serotonyl.ru/gift-ledger/internal/features/members"
)

var adminActor = iauth.Admin(1)

func auth(u *members.User) iauth.Actor { return iauth.User(u.ID) }
