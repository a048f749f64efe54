package graph

const schemaString = `
type User {
  id: ID!
  username: String!
  email: String!
  dateJoined: String!
}

type Poll {
  id: ID!
  url: String!
  name: String!
  description: String!
  postedBy: User
  isOpen: Boolean!
  result: Int!
  createdAt: String!
}

type Vote {
  id: ID!
  user: User!
  poll: Poll!
  weight: Int!
  createdAt: String!
}

type CreatePollPayload {
  id: Int!
  url: String!
  name: String!
  description: String!
  postedBy: User
  isOpen: Boolean!
}

type ClosePollPayload {
  isOpen: Boolean!
  result: Int!
}

type CreateVotePayload {
  user: User!
  poll: Poll!
}

type CreateUserPayload {
  user: User!
}

# 时间字段为Unix秒，GraphQL的Int只有32位，用Float承载
type JWTPayload {
  username: String!
  exp: Float!
  origIat: Float!
}

type TokenPayload {
  token: String!
  payload: JWTPayload!
  refreshExpiresIn: Float!
}

type VerifyPayload {
  payload: JWTPayload!
}

type Query {
  # 议题列表，search按url、name、description过滤
  polls(search: String): [Poll!]!

  # 可见的投票，search参数保留但不参与过滤
  votes(search: String): [Vote!]!

  me: User
  users: [User!]!
}

type Mutation {
  createPoll(url: String!, name: String, description: String): CreatePollPayload!
  closePoll(pollId: Int!): ClosePollPayload!

  # weight缺省为1
  createVote(pollId: Int!, weight: Int): CreateVotePayload!

  createUser(username: String!, password: String!, email: String): CreateUserPayload!
  tokenAuth(username: String!, password: String!): TokenPayload!
  verifyToken(token: String!): VerifyPayload!
  refreshToken(token: String!): TokenPayload!
}

schema {
  query: Query
  mutation: Mutation
}
`
