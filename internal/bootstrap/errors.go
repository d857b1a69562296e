package bootstrap

import "errors"

var (
	// ErrAlreadyRegistered 同一用户已在该地址注册
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrAddressOccupied 地址已被其他用户注册
	ErrAddressOccupied = errors.New("address occupied by another user")

	// ErrRegistryFull 注册表已满
	ErrRegistryFull = errors.New("registry full")

	// ErrNotRegistered 地址未注册或用户名不符
	ErrNotRegistered = errors.New("not registered")
)
