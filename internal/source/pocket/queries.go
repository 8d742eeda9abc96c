package pocket

const itemFields = `
  fragment ItemDetails on Item {
    title
    itemId
    resolvedUrl
    givenUrl
    domain
    excerpt
    topImageUrl
    datePublished
    authors {
      name
    }
    ... on Item {
      article
    }
  }
`

const savedItemFields = `
  fragment SavedItemDetails on SavedItem {
    id
    url
    _createdAt
    status
    isFavorite
    isArchived
    tags {
      name
    }
    item {
      ...ItemDetails
    }
  }
`

const listSavedItemsQuery = `
  query GetSavedItems(
    $filter: SavedItemsFilter
    $sort: SavedItemsSort
    $pagination: PaginationInput
  ) {
    user {
      savedItems(filter: $filter, sort: $sort, pagination: $pagination) {
        edges {
          cursor
          node {
            ...SavedItemDetails
          }
        }
        pageInfo {
          hasNextPage
          endCursor
        }
        totalCount
      }
    }
  }
` + savedItemFields + itemFields

const savedItemByIDQuery = `
  query GetSavedItemById($itemId: ID!) {
    user {
      savedItemById(id: $itemId) {
        ...SavedItemDetails
      }
    }
  }
` + savedItemFields + itemFields
