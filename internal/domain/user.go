package domain

// User is the public projection of an account: enough to label a message sender.
type User struct {
	ID       string
	Username string
	Email    string
}

func (u User) Sender() Sender {
	return Sender{ID: u.ID, Name: u.Username, Contact: u.Email}
}
