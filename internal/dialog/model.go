package dialog

import (
	"errors"
	"fmt"
	"time"
)

type State string

const (
	StateIdle State = "idle"

	// Вход в админку
	StateAwaitLogin    State = "await_login"
	StateAwaitPassword State = "await_password"

	// Админ-меню и шаги ввода
	StateAdminMenu        State = "admin_menu"
	StateAwaitNewProduct  State = "await_new_product"  // "Название,Цена,Количество,Категория"
	StateAwaitPrice       State = "await_price"        // новая цена выбранного товара
	StateAwaitRestock     State = "await_restock"      // дельта остатка выбранного товара
	StateAwaitCategory    State = "await_category"     // новая категория выбранного товара
	StateAwaitAccounts    State = "await_accounts"     // пачка login:password или .xlsx
	StateAwaitCatalogFile State = "await_catalog_file" // .xlsx с каталогом
	StateAwaitBroadcast   State = "await_broadcast"    // текст рассылки
	StateAwaitTopUpUser   State = "await_topup_user"   // telegram id получателя
	StateAwaitTopUpAmount State = "await_topup_amount" // сумма ручного пополнения
	StateConfirmDelete    State = "confirm_delete"

	// Покупатель
	StateAwaitDepositAmount State = "await_deposit_amount"
)

type Event string

const (
	EvAdmin          Event = "admin"
	EvLoginEntered   Event = "login_entered"
	EvLoginOK        Event = "login_ok"
	EvLoginFailed    Event = "login_failed"
	EvAddProduct     Event = "add_product"
	EvEditPrice      Event = "edit_price"
	EvRestock        Event = "restock"
	EvEditCategory   Event = "edit_category"
	EvUploadAccounts Event = "upload_accounts"
	EvImportCatalog  Event = "import_catalog"
	EvBroadcast      Event = "broadcast"
	EvTopUp          Event = "topup"
	EvTopUpUser      Event = "topup_user"
	EvDelete         Event = "delete"
	EvDone           Event = "done"
	EvBack           Event = "back"
	EvCancel         Event = "cancel"
	EvLogout         Event = "logout"
	EvDeposit        Event = "deposit"
)

var ErrInvalidTransition = errors.New("dialog: invalid transition")

// adminInputs шаги админки, из которых можно вернуться в меню.
var adminInputs = []State{
	StateAwaitNewProduct, StateAwaitPrice, StateAwaitRestock, StateAwaitCategory,
	StateAwaitAccounts, StateAwaitCatalogFile, StateAwaitBroadcast,
	StateAwaitTopUpUser, StateAwaitTopUpAmount, StateConfirmDelete,
}

var transitions = buildTransitions()

func buildTransitions() map[State]map[Event]State {
	t := map[State]map[Event]State{
		StateIdle: {
			EvAdmin:   StateAwaitLogin,
			EvDeposit: StateAwaitDepositAmount,
		},
		StateAwaitLogin: {
			EvLoginEntered: StateAwaitPassword,
			EvCancel:       StateIdle,
		},
		StateAwaitPassword: {
			EvLoginOK:     StateAdminMenu,
			EvLoginFailed: StateIdle,
			EvCancel:      StateIdle,
		},
		StateAdminMenu: {
			EvAddProduct:     StateAwaitNewProduct,
			EvEditPrice:      StateAwaitPrice,
			EvRestock:        StateAwaitRestock,
			EvEditCategory:   StateAwaitCategory,
			EvUploadAccounts: StateAwaitAccounts,
			EvImportCatalog:  StateAwaitCatalogFile,
			EvBroadcast:      StateAwaitBroadcast,
			EvTopUp:          StateAwaitTopUpUser,
			EvDelete:         StateConfirmDelete,
			EvAdmin:          StateAdminMenu,
			EvDone:           StateAdminMenu,
			EvBack:           StateAdminMenu,
			EvCancel:         StateAdminMenu,
			EvLogout:         StateIdle,
		},
		StateAwaitDepositAmount: {
			EvDone:   StateIdle,
			EvCancel: StateIdle,
		},
	}
	for _, s := range adminInputs {
		t[s] = map[Event]State{
			EvDone:   StateAdminMenu,
			EvBack:   StateAdminMenu,
			EvCancel: StateAdminMenu,
			EvAdmin:  StateAdminMenu,
			EvLogout: StateIdle,
		}
	}
	t[StateAwaitTopUpUser][EvTopUpUser] = StateAwaitTopUpAmount
	return t
}

// Next чистая функция переходов: неописанное ребро даёт ErrInvalidTransition.
func Next(from State, ev Event) (State, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s --%s-->", ErrInvalidTransition, from, ev)
}

// IsAdminState состояния, доступные только вошедшему администратору.
func IsAdminState(s State) bool {
	if s == StateAdminMenu {
		return true
	}
	for _, a := range adminInputs {
		if a == s {
			return true
		}
	}
	return false
}

type Payload map[string]any

type Item struct {
	ChatID    int64
	State     State
	Payload   Payload
	UpdatedAt time.Time
}
