package service

import (
	"errors"

	"github.com/xiaot623/gogo/supportchat/internal/domain"
)

func isValidation(err error) bool { return errors.Is(err, domain.ErrValidation) }

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
